package game

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var referrerPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidReferrer reports whether s is a 0x-prefixed 40 hex digit address
func ValidReferrer(s string) bool {
	return referrerPattern.MatchString(s)
}

// ReferralLink builds the share link that credits address as referrer
func ReferralLink(baseURL string, address common.Address) string {
	return strings.TrimRight(baseURL, "/") + "/?r=" + address.Hex()
}

// ReferrerFromURL extracts a valid referrer from the r query parameter
func ReferrerFromURL(raw string) (common.Address, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return common.Address{}, false
	}
	r := u.Query().Get("r")
	if !ValidReferrer(r) {
		return common.Address{}, false
	}
	return common.HexToAddress(r), true
}
