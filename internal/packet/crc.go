package packet

// CRC8Poly is the CRC-8/SMBUS generator polynomial x^8 + x^2 + x + 1.
const CRC8Poly = 0x07

var crc8Table = makeCRC8Table(CRC8Poly)

func makeCRC8Table(poly byte) [256]byte {
	var t [256]byte
	for i := range t {
		crc := byte(i)
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// CRC8 computes CRC-8 (poly 0x07, init 0x00, no reflection, no final xor).
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc
}
