package common

import (
	"net/url"
	"strings"
)

func Of[T any](v T) *T {
	return &v
}

// IsURL reports whether str has both a scheme and a host.
func IsURL(str string) bool {
	u, err := url.Parse(str)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// IsObjectURI reports whether uri points into an object store bucket.
func IsObjectURI(uri string) bool {
	return strings.HasPrefix(uri, "s3://") || strings.HasPrefix(uri, "minio://")
}

// SplitObjectURI splits s3://bucket/prefix into bucket and prefix.
func SplitObjectURI(uri string) (bucket, prefix string, ok bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	if u.Scheme != "s3" && u.Scheme != "minio" {
		return "", "", false
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), true
}
