// Package bundle appends a data directory to the ui-data binary as a ZIP
// archive, so one file can carry its seed collections and Lua scripts.
//
// Layout of a bundled binary:
//
//	[executable][zip data][offset int64][size int64][magic 8 bytes]
//
// The data directory's seed/ and lua/ subdirectories play the roles of the
// storage seed directory and the Lua script directory.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	// MagicMarker identifies bundled binaries
	MagicMarker = "UIDATA01"
	// FooterSize: 8 bytes offset + 8 bytes size + 8 bytes magic
	FooterSize = 24

	// SeedDir and LuaDir are the bundle directories the server reads.
	SeedDir = "seed"
	LuaDir  = "lua"
)

// ErrNotBundled is returned when a binary carries no bundle.
var ErrNotBundled = errors.New("binary is not bundled")

// editor backups and lock files
var ignoreFiles = regexp.MustCompile(`^(|.*/)((#|\.#)[^/]*|[^/]*~)$`)

// Footer contains metadata about the bundled ZIP
type Footer struct {
	Offset int64 // Offset to start of ZIP data
	Size   int64 // Size of ZIP data
	Magic  [8]byte
}

// FileInfo describes a bundled file.
type FileInfo struct {
	Name string
	Size int64
}

// Create writes outputPath: the executable portion of sourceBinary (which
// may itself be bundled) followed by a ZIP of dataDir.
func Create(sourceBinary, dataDir, outputPath string) error {
	info, err := os.Stat(dataDir)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", dataDir)
	}

	binarySize, err := BinarySize(sourceBinary)
	if err != nil {
		return fmt.Errorf("failed to get binary size: %w", err)
	}

	var zipBuf bytes.Buffer
	zipWriter := zip.NewWriter(&zipBuf)
	if err := addDirToZip(zipWriter, dataDir); err != nil {
		zipWriter.Close()
		return fmt.Errorf("failed to add files to ZIP: %w", err)
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close ZIP writer: %w", err)
	}

	srcFile, err := os.Open(sourceBinary)
	if err != nil {
		return fmt.Errorf("failed to open source binary: %w", err)
	}
	defer srcFile.Close()

	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.CopyN(outFile, srcFile, binarySize); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}
	if _, err := outFile.Write(zipBuf.Bytes()); err != nil {
		return fmt.Errorf("failed to write ZIP data: %w", err)
	}

	footer := Footer{Offset: binarySize, Size: int64(zipBuf.Len())}
	copy(footer.Magic[:], MagicMarker)
	if err := binary.Write(outFile, binary.LittleEndian, footer); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}
	return outFile.Close()
}

// addDirToZip adds the regular files under dir. Symlinks are followed.
func addDirToZip(zipWriter *zip.Writer, dir string) error {
	return filepath.WalkDir(dir, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || ignoreFiles.MatchString(filePath) {
			return nil
		}
		relPath, err := filepath.Rel(dir, filePath)
		if err != nil {
			return err
		}

		file, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer file.Close()
		info, err := file.Stat()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		header := &zip.FileHeader{
			Name:   filepath.ToSlash(relPath),
			Method: zip.Deflate,
		}
		header.SetMode(info.Mode())
		w, err := zipWriter.CreateHeader(header)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, file)
		return err
	})
}

// readFooter reads the footer of file, reporting whether it marks a bundle.
func readFooter(file *os.File) (Footer, int64, bool, error) {
	info, err := file.Stat()
	if err != nil {
		return Footer{}, 0, false, fmt.Errorf("failed to stat binary: %w", err)
	}
	fileSize := info.Size()
	if fileSize < FooterSize {
		return Footer{}, fileSize, false, nil
	}
	if _, err := file.Seek(fileSize-FooterSize, io.SeekStart); err != nil {
		return Footer{}, fileSize, false, fmt.Errorf("failed to seek to footer: %w", err)
	}
	var footer Footer
	if err := binary.Read(file, binary.LittleEndian, &footer); err != nil {
		return Footer{}, fileSize, false, nil
	}
	ok := bytes.Equal(footer.Magic[:], []byte(MagicMarker)) &&
		footer.Offset >= 0 && footer.Size >= 0 &&
		footer.Offset+footer.Size+FooterSize == fileSize
	return footer, fileSize, ok, nil
}

// BinarySize returns the size of the executable portion of binaryPath: the
// bundle offset if it is bundled, otherwise the whole file.
func BinarySize(binaryPath string) (int64, error) {
	file, err := os.Open(binaryPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open binary: %w", err)
	}
	defer file.Close()

	footer, fileSize, ok, err := readFooter(file)
	if err != nil {
		return 0, err
	}
	if ok {
		return footer.Offset, nil
	}
	return fileSize, nil
}

// Open returns the bundle of binaryPath, or ErrNotBundled.
func Open(binaryPath string) (*zip.Reader, error) {
	file, err := os.Open(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary: %w", err)
	}
	defer file.Close()

	footer, _, ok, err := readFooter(file)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotBundled
	}

	zipData := make([]byte, footer.Size)
	if _, err := file.ReadAt(zipData, footer.Offset); err != nil {
		return nil, fmt.Errorf("failed to read ZIP data: %w", err)
	}
	zipReader, err := zip.NewReader(bytes.NewReader(zipData), footer.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP reader: %w", err)
	}
	return zipReader, nil
}

// Self returns the bundle of the running executable, or ErrNotBundled.
func Self() (*zip.Reader, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	return Open(exePath)
}

// Sub returns the bundle directory dir, reporting false if the bundle has
// no such directory.
func Sub(z *zip.Reader, dir string) (fs.FS, bool) {
	info, err := fs.Stat(z, dir)
	if err != nil || !info.IsDir() {
		return nil, false
	}
	sub, err := fs.Sub(z, dir)
	if err != nil {
		return nil, false
	}
	return sub, true
}

// List returns the bundled files sorted by name.
func List(z *zip.Reader) []FileInfo {
	files := make([]FileInfo, 0, len(z.File))
	for _, f := range z.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files = append(files, FileInfo{Name: f.Name, Size: int64(f.UncompressedSize64)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

// Extract writes the bundled files under targetDir.
func Extract(z *zip.Reader, targetDir string) error {
	absTargetDir, err := filepath.Abs(targetDir)
	if err != nil {
		return err
	}
	for _, f := range z.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractFile(f, absTargetDir); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, absTargetDir string) error {
	targetPath := filepath.Join(absTargetDir, filepath.FromSlash(f.Name))
	if !isWithinDir(targetPath, absTargetDir) {
		return fmt.Errorf("zip entry escapes target directory: %s", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// isWithinDir checks if absPath is within absDir
func isWithinDir(absPath, absDir string) bool {
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
