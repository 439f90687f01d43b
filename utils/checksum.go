package utils

import (
	"bufio"
	"errors"
	//#nosec G505 -- sha1 is required by the staging server checksum files.
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"

	"github.com/minio/sha256-simd"
)

// Checksums holds the digests uploaded alongside a deployed artifact.
type Checksums struct {
	Sha1   string
	Sha256 string
}

// GetFileChecksums reads the file once and returns its sha1 and sha256 digests.
func GetFileChecksums(filePath string) (checksums Checksums, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	return CalcChecksums(file)
}

// CalcChecksums feeds both hashes through AsyncMultiWriter, so the reader is consumed only once.
func CalcChecksums(reader io.Reader) (Checksums, error) {
	sha1Hash, sha256Hash := sha1.New(), sha256.New()
	sizedReader := bufio.NewReaderSize(reader, os.Getpagesize())
	if _, err := io.Copy(AsyncMultiWriter(sha1Hash, sha256Hash), sizedReader); err != nil {
		return Checksums{}, err
	}
	return Checksums{
		Sha1:   hex.EncodeToString(sha1Hash.Sum(nil)),
		Sha256: hex.EncodeToString(sha256Hash.Sum(nil)),
	}, nil
}
