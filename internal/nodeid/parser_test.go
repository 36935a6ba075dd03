package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name         string
		rawID        string
		expectErr    bool
		expectedAddr *Address
	}{
		{
			name:         "plain job",
			rawID:        "lint",
			expectedAddr: &Address{Job: "lint"},
		},
		{
			name:  "single binding",
			rawID: "test[os=linux]",
			expectedAddr: &Address{
				Job:      "test",
				Bindings: []Binding{{Axis: "os", Label: "linux"}},
			},
		},
		{
			name:  "binding order is preserved",
			rawID: "test[os=linux,channel=beta]",
			expectedAddr: &Address{
				Job:      "test",
				Bindings: []Binding{{Axis: "os", Label: "linux"}, {Axis: "channel", Label: "beta"}},
			},
		},
		{name: "error - empty string", rawID: "", expectErr: true},
		{name: "error - empty bindings", rawID: "test[]", expectErr: true},
		{name: "error - missing equals", rawID: "test[os]", expectErr: true},
		{name: "error - empty label", rawID: "test[os=]", expectErr: true},
		{name: "error - duplicate axis", rawID: "test[os=a,os=b]", expectErr: true},
		{name: "error - invalid job", rawID: "1test", expectErr: true},
		{name: "error - unterminated", rawID: "test[os=linux", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := Parse(tc.rawID)
			if tc.expectErr {
				require.Error(t, err)
				assert.Nil(t, addr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedAddr, addr)
		})
	}
}

func TestValidLabel(t *testing.T) {
	assert.True(t, ValidLabel("1.70.0"))
	assert.True(t, ValidLabel("x86_64-pc-windows-msvc"))
	assert.False(t, ValidLabel(""))
	assert.False(t, ValidLabel("a,b"))
	assert.False(t, ValidLabel("a=b"))
	assert.False(t, ValidLabel("has space"))
}
