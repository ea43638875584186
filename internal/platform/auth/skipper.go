package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication: infrastructure endpoints and the
// listener's legacy results route.
var publicPaths = map[string]bool{
	"/":                  true,
	"/health":            true,
	"/metrics":           true,
	"/api/filtered_tags": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. It matches on the registered route path.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path bypasses auth.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
