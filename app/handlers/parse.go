package handlers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/m3rciful/cardbot/app/errs"
)

// Upload is one parsed "name,price" row.
type Upload struct {
	Name  string
	Price string
}

// ParseUpload parses rows of exactly two comma separated columns. Columns are
// kept verbatim. Any row without two columns rejects the whole payload.
func ParseUpload(raw string) ([]Upload, error) {
	raw = strings.ReplaceAll(raw, "\r", "")
	rows := strings.Split(raw, "\n")
	out := make([]Upload, 0, len(rows))
	for i, row := range rows {
		cols := strings.Split(row, ",")
		if len(cols) != 2 {
			return nil, errs.Validation("parse upload", "row %d has %d columns, want 2", i+1, len(cols))
		}
		out = append(out, Upload{Name: cols[0], Price: cols[1]})
	}
	return out, nil
}

// DeleteAll is the stash value selecting every owned item.
const DeleteAll = "all"

var idSeparators = regexp.MustCompile(`[ ,]+`)

// NormalizeDeleteIDs turns "1, 2 3" into "1,2,3". It returns "" when args
// select nothing, DeleteAll for "all", and a validation error for non-numeric ids.
func NormalizeDeleteIDs(args string) (string, error) {
	args = strings.TrimSpace(args)
	if strings.EqualFold(args, DeleteAll) {
		return DeleteAll, nil
	}
	norm := strings.Trim(idSeparators.ReplaceAllString(args, ","), ",")
	if norm == "" {
		return "", nil
	}
	if _, err := splitIDs(norm); err != nil {
		return "", err
	}
	return norm, nil
}

func splitIDs(norm string) ([]int64, error) {
	parts := strings.Split(norm, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, errs.Validation("delete ids", "invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
