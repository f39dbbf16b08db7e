package intercept

import "fmt"

// ringSize computes AF_PACKET ring parameters for a ring of about
// bufferSizeMB megabytes holding frames of snapLen bytes.
//
// PACKET_MMAP requires frameSize to be a multiple of TPACKET_ALIGNMENT,
// blockSize to be a multiple of both pageSize and frameSize.
func ringSize(bufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52 // TPACKET3_HDRLEN, approximately
	const maxBlockSize = 4 << 20

	if bufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = (tpacketHdrLen + snapLen + tpacketAlignment - 1) / tpacketAlignment * tpacketAlignment

	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// fall back to whole frames per block, rounded up to pages
		blockSize = (maxBlockSize / frameSize) * frameSize
		blockSize = (blockSize + pageSize - 1) / pageSize * pageSize
	}

	numBlocks = bufferSizeMB << 20 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}
