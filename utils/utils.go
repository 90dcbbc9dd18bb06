// utils/utils.go

package utils

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// LobbyCodeSpace is the number of distinct 4-digit lobby codes.
const LobbyCodeSpace = 10000

func GenerateUUIDString() string {
	id := uuid.New()
	return id.String()
}

// GenerateLobbyCode returns a random 4-digit numeric code, zero padded.
func GenerateLobbyCode() string {
	return FormatLobbyCode(rand.IntN(LobbyCodeSpace))
}

func FormatLobbyCode(n int) string {
	return fmt.Sprintf("%04d", n)
}

// ValidLobbyCode reports whether code is exactly four ASCII digits.
func ValidLobbyCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
