// internal/loader/loader.go
// 輸入載入模組 - 主旨清單、HTML 樣板、收件人檔案

package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emersion/go-message/mail"

	"mail-dispatch/internal/models"
)

var (
	ErrNoSubjects       = errors.New("no subjects found")
	ErrNoTemplates      = errors.New("no html templates found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrNoRecipients     = errors.New("no valid recipients found")
	ErrMissingEmail     = errors.New("recipient file has no email column")
)

// RowError 被拒絕的收件人資料列
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// LoadSubjects 讀取主旨清單 (每行一個，忽略空行)
func LoadSubjects(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subjects %s: %w", path, err)
	}

	var subjects []string
	for _, line := range strings.Split(string(data), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			subjects = append(subjects, s)
		}
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSubjects)
	}
	return subjects, nil
}

// ListTemplates 列出目錄下的 .html 樣板 (依檔名排序)
func ListTemplates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".html") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoTemplates)
	}
	sort.Strings(names)
	return names, nil
}

// LoadTemplate 讀取指定樣板，name 為空時使用第一個
func LoadTemplate(dir, name string) (string, error) {
	names, err := ListTemplates(dir)
	if err != nil {
		return "", err
	}

	if name == "" {
		name = names[0]
	} else {
		found := false
		for _, n := range names {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("%s: %w", name, ErrTemplateNotFound)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", name, err)
	}
	return string(data), nil
}

// LoadRecipients 讀取收件人 CSV 檔案
func LoadRecipients(path string) ([]models.Recipient, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open recipients %s: %w", path, err)
	}
	defer f.Close()

	return ParseRecipients(f)
}

// ParseRecipients 解析收件人 CSV
// 第一列必須為欄位名稱，email 欄位必填，其他欄位 (name, phone, address, zip, city, country) 可省略
// Email 無效的資料列會回傳於 RowError，不會被默默丟棄
func ParseRecipients(r io.Reader) ([]models.Recipient, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrNoRecipients
		}
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}
	if _, ok := columns["email"]; !ok {
		return nil, nil, ErrMissingEmail
	}

	field := func(rec []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var (
		recipients []models.Recipient
		rejected   []RowError
	)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rejected = append(rejected, RowError{Line: perr.Line, Reason: perr.Err.Error()})
				continue
			}
			return nil, rejected, fmt.Errorf("failed to read recipients: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		email := field(rec, "email")
		if email == "" {
			rejected = append(rejected, RowError{Line: line, Reason: "missing email"})
			continue
		}
		addr, err := mail.ParseAddress(email)
		if err != nil {
			rejected = append(rejected, RowError{Line: line, Reason: fmt.Sprintf("invalid email %q", email)})
			continue
		}

		recipients = append(recipients, models.Recipient{
			Name:    field(rec, "name"),
			Email:   addr.Address,
			Phone:   field(rec, "phone"),
			Address: field(rec, "address"),
			Zip:     field(rec, "zip"),
			City:    field(rec, "city"),
			Country: field(rec, "country"),
		})
	}

	if len(recipients) == 0 {
		return nil, rejected, ErrNoRecipients
	}
	return recipients, rejected, nil
}
