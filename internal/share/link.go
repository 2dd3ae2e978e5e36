package share

import (
	"fmt"
	"net/url"
	"strings"
)

// Link builds <origin><path>#<token> from base and text. Any fragment
// already present on base is replaced; the query, if any, is kept as is.
func (c *Codec) Link(base, text string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("share: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("share: base url %q must be absolute", base)
	}
	u.Fragment = ""
	u.RawFragment = ""

	return u.String() + "#" + c.Encode(text), nil
}

// ParseLink decodes the fragment of a share link. A link without a fragment,
// or with an empty one, yields ErrNoFragment.
func (c *Codec) ParseLink(link string) (string, error) {
	i := strings.IndexByte(link, '#')
	if i < 0 {
		return "", ErrNoFragment
	}
	return c.Decode(link[i+1:])
}

// Link builds a share link with the default codec.
func Link(base, text string) (string, error) {
	return defaultCodec.Link(base, text)
}

// ParseLink decodes a share link with the default codec.
func ParseLink(link string) (string, error) {
	return defaultCodec.ParseLink(link)
}
