package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"student_achievements/backend/internal/report"
	"student_achievements/backend/internal/shared"
)

// ArchiveContentType is the media type of the archive payload
const ArchiveContentType = "application/zip"

// Opener resolves an achievement's attachment to a byte stream
type Opener interface {
	Open(ctx context.Context, a *shared.Achievement) (io.ReadCloser, error)
}

// Sanitize replaces every rune outside [A-Za-z0-9] with an underscore
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// PathSegment keeps s as typed except for separators, control characters
// and "..", so it can never leave its folder when extracted.
func PathSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, s)
	return strings.ReplaceAll(s, "..", "_")
}

// Extension is the suffix after the last dot of filename, or "" without one
func Extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}
	return Sanitize(filename[i+1:])
}

// EntryPath is the archive path of one attachment:
// {name}_{roll}/{title}.{ext}
func EntryPath(s *shared.Student, a *shared.Achievement) (dir, base, ext string) {
	dir = Sanitize(s.Name) + "_" + PathSegment(s.RollNumber)
	base = Sanitize(a.Title)
	ext = Extension(a.File.Filename)
	return dir, base, ext
}

// pathSet hands out unique entry names, suffixing _2, _3, ... on collision
type pathSet map[string]bool

func (p pathSet) claim(dir, base, ext string) string {
	join := func(b string) string {
		if ext == "" {
			return dir + "/" + b
		}
		return dir + "/" + b + "." + ext
	}

	name := join(base)
	for n := 2; p[name]; n++ {
		name = join(fmt.Sprintf("%s_%d", base, n))
	}
	p[name] = true
	return name
}

// WriteArchive streams every attachment of the joined result into a zip on
// w. Achievements without an attachment are skipped. Entries are compressed
// as their bytes are read; the central directory is written last.
func WriteArchive(ctx context.Context, w io.Writer, joined []report.Joined, files Opener) (int, error) {
	zw := zip.NewWriter(w)
	paths := pathSet{}
	written := 0

	for i := range joined {
		student := &joined[i].Student
		for _, group := range joined[i].Groups {
			for k := range group.Achievements {
				a := &group.Achievements[k]
				if !a.HasFile() {
					continue
				}
				if err := ctx.Err(); err != nil {
					return written, err
				}

				name := paths.claim(EntryPath(student, a))
				if err := copyEntry(ctx, zw, name, a, files); err != nil {
					return written, fmt.Errorf("archive entry %s: %w", name, err)
				}
				written++
			}
		}
	}

	return written, zw.Close()
}

func copyEntry(ctx context.Context, zw *zip.Writer, name string, a *shared.Achievement, files Opener) error {
	src, err := files.Open(ctx, a)
	if err != nil {
		return err
	}
	defer src.Close()

	modified := a.CreatedAt
	if !a.UpdatedAt.IsZero() {
		modified = a.UpdatedAt
	}
	if modified.IsZero() {
		modified = time.Now()
	}

	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return err
	}

	_, err = io.Copy(dst, src)
	return err
}
