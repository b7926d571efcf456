// Package edinet implements the EDINET data provider for Japanese
// regulatory filings. It walks the EDINET v2 document-list API backwards
// day by day to find a company's annual and semi-annual reports,
// downloads the filing archives, and feeds the contained XBRL instance
// documents through the statement extractor.
package edinet

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tradechartjp/tradechart/internal/infra"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

// defaultBaseURL is a variable so tests can point the client at a local server.
var defaultBaseURL = "https://disclosure.edinet-fsa.go.jp/api/v2"

// Form codes for the filings the dashboard cares about.
const (
	FormAnnualReport     = "120"
	FormSemiAnnualReport = "130"
)

// DocumentRow is one entry of the EDINET daily document list.
type DocumentRow struct {
	DocID          string `json:"docID"`
	EdinetCode     string `json:"edinetCode"`
	SecCode        string `json:"secCode"`
	FilerName      string `json:"filerName"`
	DocTypeCode    string `json:"docTypeCode"`
	DocDescription string `json:"docDescription"`
	SubmitDateTime string `json:"submitDateTime"`
	PeriodEnd      string `json:"periodEnd"`
}

type documentListResponse struct {
	Results []DocumentRow `json:"results"`
}

// Client talks to the EDINET v2 API.
type Client struct {
	baseURL     string
	userAgent   string
	downloadDir string

	mu         sync.Mutex
	dailyCache map[string][]DocumentRow // date string -> rows, empty slice for 404 days
}

// NewClient creates an EDINET client that stores downloaded archives
// under downloadDir.
func NewClient(userAgent, downloadDir string) (*Client, error) {
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	return &Client{
		baseURL:     defaultBaseURL,
		userAgent:   userAgent,
		downloadDir: downloadDir,
		dailyCache:  make(map[string][]DocumentRow),
	}, nil
}

// ListOptions narrows a document search.
type ListOptions struct {
	// FormCodes restricts results by docTypeCode. Empty means any form.
	FormCodes []string
	// Limit caps the number of documents returned. Must be positive.
	Limit int
	// UseSecurityCode matches rows on secCode instead of edinetCode.
	// EDINET pads security codes, so the comparison strips leading zeros.
	UseSecurityCode bool
}

// ListDocuments walks back from today one day at a time and collects the
// most recent filings for a company. EDINET has no per-filer query, so the
// search scans daily submission lists until Limit documents are found or
// the lookback window runs out.
func (c *Client) ListDocuments(ctx context.Context, code string, opts ListOptions) ([]DocumentRow, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	allowed := make(map[string]bool, len(opts.FormCodes))
	for _, f := range opts.FormCodes {
		allowed[strings.ToUpper(f)] = true
	}
	target := normalizeCode(code, opts.UseSecurityCode)

	var results []DocumentRow
	seen := make(map[string]bool)

	day := utils.NowJST()
	maxDays := opts.Limit * 400
	if maxDays < 400 {
		maxDays = 400
	}

	for len(results) < opts.Limit && maxDays > 0 {
		rows, err := c.documentsByDate(ctx, day.Format("2006-01-02"))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if len(allowed) > 0 && !allowed[row.DocTypeCode] {
				continue
			}
			candidate := row.EdinetCode
			if opts.UseSecurityCode {
				candidate = row.SecCode
			}
			if candidate == "" || normalizeCode(candidate, opts.UseSecurityCode) != target {
				continue
			}
			if row.DocID == "" || seen[row.DocID] {
				continue
			}
			results = append(results, row)
			seen[row.DocID] = true
			if len(results) >= opts.Limit {
				break
			}
		}
		day = day.AddDate(0, 0, -1)
		maxDays--
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SubmitDateTime > results[j].SubmitDateTime
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// DownloadDocument fetches the filing archive (type=1, ZIP) for docID and
// writes it under the download directory. Returns the archive path.
func (c *Client) DownloadDocument(ctx context.Context, docID string) (string, error) {
	url := fmt.Sprintf("%s/documents/%s?type=1", c.baseURL, docID)
	body, _, err := infra.DoGet(ctx, url, c.headers())
	if err != nil {
		return "", fmt.Errorf("download document %s: %w", docID, err)
	}
	defer body.Close()

	path := filepath.Join(c.downloadDir, docID+".zip")
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, body); err != nil {
		os.Remove(path) //nolint:errcheck
		return "", fmt.Errorf("write archive %s: %w", docID, err)
	}
	return path, nil
}

// ExtractPrimaryXBRL unpacks every .xbrl member from the archive next to
// it and returns the path of the first one, the instance document. Returns
// "" when the archive holds no XBRL file.
func (c *Client) ExtractPrimaryXBRL(zipPath string) (string, error) {
	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open archive %s: %w", zipPath, err)
	}
	defer archive.Close()

	outDir := strings.TrimSuffix(zipPath, filepath.Ext(zipPath))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create extract dir: %w", err)
	}

	var primary string
	for _, member := range archive.File {
		if !strings.HasSuffix(strings.ToLower(member.Name), ".xbrl") {
			continue
		}
		dest := filepath.Join(outDir, filepath.Base(member.Name))
		if err := extractMember(member, dest); err != nil {
			return "", err
		}
		if primary == "" {
			primary = dest
		}
	}
	return primary, nil
}

func extractMember(member *zip.File, dest string) error {
	src, err := member.Open()
	if err != nil {
		return fmt.Errorf("open archive member %s: %w", member.Name, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("extract %s: %w", member.Name, err)
	}
	return nil
}

// documentsByDate fetches one day's submission list, memoizing per date.
// A 404 means no list exists for that day (weekend, holiday, future) and
// is cached as an empty day.
func (c *Client) documentsByDate(ctx context.Context, date string) ([]DocumentRow, error) {
	c.mu.Lock()
	if rows, ok := c.dailyCache[date]; ok {
		c.mu.Unlock()
		return rows, nil
	}
	c.mu.Unlock()

	url := fmt.Sprintf("%s/documents.json?date=%s&type=2", c.baseURL, date)
	body, status, err := infra.DoGet(ctx, url, c.headers())
	if err != nil {
		if status == 404 {
			c.storeDaily(date, []DocumentRow{})
			return []DocumentRow{}, nil
		}
		return nil, fmt.Errorf("list documents %s: %w", date, err)
	}
	defer body.Close()

	var resp documentListResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("parse document list %s: %w", date, err)
	}
	if resp.Results == nil {
		resp.Results = []DocumentRow{}
	}
	c.storeDaily(date, resp.Results)
	return resp.Results, nil
}

func (c *Client) storeDaily(date string, rows []DocumentRow) {
	c.mu.Lock()
	c.dailyCache[date] = rows
	c.mu.Unlock()
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"User-Agent": c.userAgent,
		"Accept":     "application/json",
	}
}

// normalizeCode prepares a code for comparison. Security codes lose their
// leading zeros (EDINET pads 7203 to 72030); EDINET codes are uppercased.
func normalizeCode(code string, isSecurityCode bool) string {
	if isSecurityCode {
		return strings.TrimLeft(code, "0")
	}
	return strings.ToUpper(code)
}
