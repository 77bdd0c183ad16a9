package middleware

var publicRoutes = map[string]struct{}{
	"/":       {},
	"/health": {},
}

// IsPublicRoute проверяет, является ли маршрут публичным
func IsPublicRoute(path string) bool {
	_, ok := publicRoutes[path]
	return ok
}
