package game

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestValidReferrer(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0x2222222222222222222222222222222222222222", true},
		{"0xAbCdEf0123456789aBcDeF0123456789abcdef01", true},
		{"2222222222222222222222222222222222222222", false},
		{"0x222222222222222222222222222222222222222", false},
		{"0x22222222222222222222222222222222222222222", false},
		{"0xzz22222222222222222222222222222222222222", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidReferrer(tt.in), tt.in)
	}
}

func TestReferralLink(t *testing.T) {
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	link := ReferralLink("https://memespin.fun/", addr)
	assert.Equal(t, "https://memespin.fun/?r=0x2222222222222222222222222222222222222222", link)

	got, ok := ReferrerFromURL(link)
	assert.True(t, ok)
	assert.Equal(t, addr, got)

	_, ok = ReferrerFromURL("https://memespin.fun/?r=0x1234")
	assert.False(t, ok)
	_, ok = ReferrerFromURL("https://memespin.fun/")
	assert.False(t, ok)
	_, ok = ReferrerFromURL("://bad")
	assert.False(t, ok)
}
