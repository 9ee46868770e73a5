package rasterize

import (
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Info is the document information dictionary of a PDF.
type Info struct {
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Creator   string `json:"creator,omitempty"`
	Producer  string `json:"producer,omitempty"`
	Pages     int    `json:"pages"`
	Encrypted bool   `json:"encrypted,omitempty"`
}

// Info reads PDF metadata with pdfcpu.
func (z *Rasterizer) Info(path string) (*Info, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf context: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	return &Info{
		Title:     strings.TrimSpace(ctx.Title),
		Author:    strings.TrimSpace(ctx.Author),
		Subject:   strings.TrimSpace(ctx.Subject),
		Creator:   strings.TrimSpace(ctx.Creator),
		Producer:  strings.TrimSpace(ctx.Producer),
		Pages:     ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
	}, nil
}
