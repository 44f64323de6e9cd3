// Package view renders the ops dashboard.
package view

import (
	"strconv"

	"github.com/msomdec/tagbatch/internal/domain"
)

type countRow struct {
	Label string
	Value string
}

func countRows(c domain.StoreCounts) []countRow {
	return []countRow{
		{"Sessions", strconv.Itoa(c.Sessions)},
		{"Groups", strconv.Itoa(c.Groups)},
		{"Images", strconv.Itoa(c.Images)},
		{"Blobs", strconv.Itoa(c.Blobs)},
		{"Originals", strconv.Itoa(c.Originals)},
		{"Stored bytes", strconv.FormatInt(c.BlobBytes, 10)},
	}
}
