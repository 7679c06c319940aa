package main

import "strings"

// parseOwnerName извлекает имя владельца пода из hostname Kubernetes:
//   - Deployment: <name>-<хэш ReplicaSet>-<суффикс пода>
//   - StatefulSet: <name>-<ordinal>
//
// Hostname другого вида возвращается без изменений.
func parseOwnerName(hostname string) string {
	parts := strings.Split(hostname, "-")
	n := len(parts)

	if n >= 3 && isPodSuffix(parts[n-1]) && isReplicaSetHash(parts[n-2]) {
		return strings.Join(parts[:n-2], "-")
	}
	if n >= 2 && isDigits(parts[n-1]) {
		return strings.Join(parts[:n-1], "-")
	}
	return hostname
}

// isPodSuffix — 5 символов [a-z0-9].
func isPodSuffix(s string) bool {
	return len(s) == 5 && isLowerAlnum(s)
}

// isReplicaSetHash — 6-10 символов [a-z0-9].
func isReplicaSetHash(s string) bool {
	return len(s) >= 6 && len(s) <= 10 && isLowerAlnum(s)
}

func isLowerAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
