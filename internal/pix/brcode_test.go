package pix

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16(t *testing.T) {
	// CRC-16/CCITT-FALSE check value.
	assert.Equal(t, uint16(0x29B1), crc16("123456789"))
}

func TestBRCode(t *testing.T) {
	m := Merchant{Key: "pix@example.com", Name: "Pelada de Quinta", City: "São Paulo"}
	code := BRCode(m, 1250, "0f1e2d3c4b5a69788796a5b4c3d2e1f0", "Futebol")

	assert.True(t, strings.HasPrefix(code, "000201"))
	assert.Contains(t, code, "0014br.gov.bcb.pix")
	assert.Contains(t, code, "0115pix@example.com")
	assert.Contains(t, code, "540512.50")
	assert.Contains(t, code, "5303986")
	assert.Contains(t, code, "5916PELADA DE QUINTA")
	assert.Contains(t, code, "6009SAO PAULO")
	// Reference label is capped at 25 characters.
	assert.Contains(t, code, "62290525"+"0f1e2d3c4b5a69788796a5b4c")

	body, sum := code[:len(code)-4], code[len(code)-4:]
	assert.True(t, strings.HasSuffix(body, "6304"))
	assert.Equal(t, fmt.Sprintf("%04X", crc16(body)), sum)
}

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"São Paulo", 15, "SAO PAULO"},
		{"  Brasília ", 15, "BRASILIA"},
		{"Associação Atlética Banco", 25, "ASSOCIACAO ATLETICA BANCO"},
		{"Florianópolis do Sul", 15, "FLORIANOPOLIS D"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, clean(tt.in, tt.max))
		})
	}
}

func TestNewTxID(t *testing.T) {
	a, b := NewTxID(), NewTxID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, alnum(a))
}
