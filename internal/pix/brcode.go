package pix

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/susu3304/falta1/internal/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Merchant identifies the receiving PIX account in a BR Code.
type Merchant struct {
	Key  string
	Name string
	City string
}

const (
	maxMerchantName = 25
	maxMerchantCity = 15
	maxReference    = 25
	maxInfo         = 72
)

// BRCode builds a static EMV "copia e cola" payload for amount. reference
// is stored as the reference label and truncated to what the format
// allows.
func BRCode(m Merchant, amount model.Money, reference, info string) string {
	account := field("00", "br.gov.bcb.pix") + field("01", m.Key)
	if info = clean(info, maxInfo); info != "" {
		account += field("02", info)
	}

	ref := alnum(reference)
	if ref == "" {
		ref = "***"
	}
	if len(ref) > maxReference {
		ref = ref[:maxReference]
	}

	var b strings.Builder
	b.WriteString(field("00", "01"))
	b.WriteString(field("26", account))
	b.WriteString(field("52", "0000"))
	b.WriteString(field("53", "986"))
	if amount > 0 {
		b.WriteString(field("54", amount.Decimal()))
	}
	b.WriteString(field("58", "BR"))
	b.WriteString(field("59", clean(m.Name, maxMerchantName)))
	b.WriteString(field("60", clean(m.City, maxMerchantCity)))
	b.WriteString(field("62", field("05", ref)))
	b.WriteString("6304")
	return b.String() + fmt.Sprintf("%04X", crc16(b.String()))
}

func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// clean strips accents and anything outside printable ASCII, then upper
// cases and truncates.
func clean(s string, max int) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, out)
	out = strings.ToUpper(strings.TrimSpace(out))
	if len(out) > max {
		out = strings.TrimSpace(out[:max])
	}
	return out
}

func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, s)
}

// crc16 is CRC-16/CCITT-FALSE, the checksum EMV QR payloads carry in field 63.
func crc16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
