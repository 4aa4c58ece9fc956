package utils

import (
	"crypto/rand"
	"math/big"
)

const (
	// roomCodeChars leaves out 0, O, 1, I and L so codes survive being read aloud.
	roomCodeChars = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

func GenerateRoomCode() string {
	return generateRandom(RoomCodeLength, roomCodeChars)
}

func generateRandom(length int, charset string) string {
	result := make([]byte, length)
	charsetLength := big.NewInt(int64(len(charset)))

	for i := range result {
		num, _ := rand.Int(rand.Reader, charsetLength)
		result[i] = charset[num.Int64()]
	}

	return string(result)
}
