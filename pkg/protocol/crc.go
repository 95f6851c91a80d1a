package protocol

const crcPolynomial uint16 = 0x1021

var crcTable = makeCRCTable()

func makeCRCTable() (t [256]uint16) {
	for n := range t {
		crc := uint16(n) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
		t[n] = crc
	}
	return
}

// CRC16 calculates the CRC-CCITT (XMODEM variant: init 0, no reflection,
// no final xor) used by command and ack frames.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// VerifyCRC16 checks data against a received checksum.
// IgnoredChecksum always passes.
func VerifyCRC16(data []byte, received uint16) error {
	if received == IgnoredChecksum {
		return nil
	}
	if calculated := CRC16(data); calculated != received {
		return &ChecksumError{Expected: received, Calculated: calculated}
	}
	return nil
}
