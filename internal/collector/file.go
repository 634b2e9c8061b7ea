package collector

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"

	"ValuationSentinel/internal/apperrors"
	"ValuationSentinel/internal/valuation"
)

// FileFetcher reads valuation tables from CSV files dropped into a directory.
// For prefix "hs300" the newest "hs300_*.csv" wins; "hs300.csv" is the fallback.
type FileFetcher struct {
	Dir string
}

// NewFileFetcher creates a fetcher rooted at dir.
func NewFileFetcher(dir string) *FileFetcher {
	return &FileFetcher{Dir: dir}
}

func (f *FileFetcher) Name() string { return "csv:" + f.Dir }

// FindLatest returns the newest data file for prefix and its modification time.
func (f *FileFetcher) FindLatest(prefix string) (string, time.Time, error) {
	matches, err := filepath.Glob(filepath.Join(f.Dir, prefix+"_*.csv"))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("glob %s: %w", prefix, err)
	}

	var (
		best    string
		bestMod time.Time
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = m, info.ModTime()
		}
	}
	if best != "" {
		return best, bestMod, nil
	}

	fixed := filepath.Join(f.Dir, prefix+".csv")
	if info, err := os.Stat(fixed); err == nil && !info.IsDir() {
		return fixed, info.ModTime(), nil
	}
	return "", time.Time{}, fmt.Errorf("%s in %s: %w", prefix, f.Dir, apperrors.ErrNoDataFile)
}

// FetchTable locates and parses the newest file for prefix.
func (f *FileFetcher) FetchTable(ctx context.Context, prefix string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, mod, err := f.FindLatest(prefix)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	raw, err := ParseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Table{Raw: raw, Source: filepath.Base(path), ModifiedAt: mod}, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText converts vendor exports to UTF-8: a leading BOM is dropped and
// input that is not valid UTF-8 is treated as GBK.
func DecodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode gbk: %w", err)
	}
	return out, nil
}

// ParseCSV decodes a CSV export into a RawTable. The first record is the header.
func ParseCSV(data []byte) (*valuation.RawTable, error) {
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return &valuation.RawTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &valuation.RawTable{Columns: header}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}
