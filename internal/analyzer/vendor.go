package analyzer

import "strings"

// DefaultVendorPatterns are path fragments of bundled third-party libraries.
var DefaultVendorPatterns = []string{
	"/vendor/",
	"/phpseclib/",
	"/Monolog/",
	"/guzzlehttp/",
	"/google/",
	"/voku/",
	"/cmb2/",
	"/Dependencies/Minify/",
	"/symfony/",
	"/psr/",
}

// VendorAllowlist matches paths of presumed third-party code.
type VendorAllowlist struct {
	fragments []string
}

// NewVendorAllowlist combines the default fragments with extra ones.
func NewVendorAllowlist(extra ...string) *VendorAllowlist {
	v := &VendorAllowlist{}
	for _, p := range append(append([]string{}, DefaultVendorPatterns...), extra...) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v.fragments = append(v.fragments, strings.ToLower(slash(p)))
	}
	return v
}

// Match reports whether p lies under an allowlisted vendor directory. The
// comparison is case-insensitive on the slash-normalized path.
func (v *VendorAllowlist) Match(p string) bool {
	if v == nil {
		return false
	}
	norm := "/" + strings.TrimPrefix(strings.ToLower(slash(p)), "/")
	for _, f := range v.fragments {
		if strings.Contains(norm, f) {
			return true
		}
	}
	return false
}

func slash(p string) string { return strings.ReplaceAll(p, `\`, "/") }
