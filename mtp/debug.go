package mtp

import "fmt"

// hexDump prints buf in the traditional 16-bytes-per-line hex/ASCII
// layout; used by tests to eyeball wire data.
func hexDump(buf []byte) {
	for i := 0; i < len(buf); i += 16 {
		end := i + 16
		if end > len(buf) {
			end = len(buf)
		}
		line := buf[i:end]

		fmt.Printf("%04x  ", i)
		for j := 0; j < 16; j++ {
			if j < len(line) {
				fmt.Printf("%02x ", line[j])
			} else {
				fmt.Print("   ")
			}
			if j == 7 {
				fmt.Print(" ")
			}
		}

		fmt.Print(" ")
		for _, b := range line {
			if b >= 0x20 && b < 0x7f {
				fmt.Printf("%c", b)
			} else {
				fmt.Print(".")
			}
		}
		fmt.Println()
	}
}
