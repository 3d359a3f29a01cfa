package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/wpspectre/internal/models"
)

// detailHeight is the collapsed detail panel height.
const detailHeight = 4

func renderDetail(f *models.Finding, expanded bool, width int) string {
	if f == nil {
		return styleDetailPanel.Width(width).Render("No finding selected")
	}

	var b strings.Builder
	sev := severityStyle(f.Severity).Render(string(f.Severity))
	b.WriteString(fmt.Sprintf("%s  %s / %s\n", sev, f.Scanner, f.Type))
	b.WriteString(styleLabel.Render("Subject: ") + f.Subject + "\n")
	if f.Detail != "" {
		b.WriteString(styleLabel.Render("Detail:  ") + f.Detail + "\n")
	}

	if expanded {
		meta := make([]string, 0, 3)
		if f.Size != nil {
			meta = append(meta, "Size: "+models.HumanBytes(*f.Size))
		}
		if f.ModifiedAt != nil {
			meta = append(meta, "Modified: "+f.ModifiedAt.Format("2006-01-02 15:04"))
		}
		if f.Fingerprint != "" {
			meta = append(meta, "Fingerprint: "+f.Fingerprint)
		}
		if len(meta) > 0 {
			b.WriteString(strings.Join(meta, "  ") + "\n")
		}

		keys := make([]string, 0, len(f.Extra))
		for k := range f.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("%s %s\n", styleLabel.Render(k+":"), f.Extra[k]))
		}
	}

	return styleDetailPanel.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}
