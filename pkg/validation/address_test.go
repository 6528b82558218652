package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "valid with prefix", addr: "0x5FbDB2315678afecb367f032d93F642f64180aa3"},
		{name: "valid without prefix", addr: "5FbDB2315678afecb367f032d93F642f64180aa3"},
		{name: "empty", addr: "", wantErr: true},
		{name: "too short", addr: "0x5FbDB2", wantErr: true},
		{name: "too long", addr: "0x5FbDB2315678afecb367f032d93F642f64180aa3ff", wantErr: true},
		{name: "not hex", addr: "0xZZbDB2315678afecb367f032d93F642f64180aa3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", NormalizeAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"))
	assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", NormalizeAddress("5FbDB2315678afecb367f032d93F642f64180aa3"))
}

func TestValidateAndNormalizeAddress(t *testing.T) {
	normalized, err := ValidateAndNormalizeAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	require.NoError(t, err)
	assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", normalized)

	_, err = ValidateAndNormalizeAddress("nope")
	assert.Error(t, err)
}
