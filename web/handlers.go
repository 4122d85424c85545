// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pinmap/pinmap/dataset"
	"github.com/pinmap/pinmap/mapview"
	"github.com/pinmap/pinmap/pipeline"
	"github.com/pinmap/pinmap/spatial"
	"github.com/pinmap/pinmap/store"
)

// Summary is the JSON form of a pipeline result.
type Summary struct {
	Source       string `json:"source"`
	RunID        string `json:"run_id"`
	Rows         int    `json:"rows"`
	OnMap        int    `json:"on_map"`
	AlreadyValid int    `json:"already_valid"`
	Resolved     int    `json:"resolved"`
	Unresolved   int    `json:"unresolved"`
	OverCap      int    `json:"over_cap"`
	Skipped      int    `json:"skipped"`
	Rescaled     int    `json:"rescaled"`
	Persisted    int    `json:"persisted"`
	Message      string `json:"message"`
}

func (s *Server) summarize(name string, res *pipeline.Result, persisted int) Summary {
	return Summary{
		Source:       name,
		RunID:        res.RunID.String(),
		Rows:         len(res.Records),
		OnMap:        len(res.RenderReady),
		AlreadyValid: res.AlreadyValid,
		Resolved:     res.Resolved,
		Unresolved:   res.Unresolved,
		OverCap:      res.OverCap,
		Skipped:      res.Skipped,
		Rescaled:     res.Rescaled,
		Persisted:    persisted,
		Message:      res.Summary(),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, dataset.ErrMissingColumns), errors.Is(err, store.ErrNotPublished):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrUnsupportedSource), errors.Is(err, spatial.ErrInvalidRegion):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNoCredentials):
		return http.StatusPreconditionFailed
	case errors.Is(err, store.ErrReadOnly), errors.Is(err, pipeline.ErrWriteInProgress),
		errors.Is(err, ErrGeocodeInProgress), errors.Is(err, ErrReplaced):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(ctx *gin.Context, err error) {
	ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *Server) mapView(ctx *gin.Context) {
	err := s.withSession(func(cur *session) error {
		v, err := mapview.Build(cur.records, mapview.Options{Region: s.cfg.Region, Message: cur.result.Summary()})
		if err != nil {
			return err
		}

		ctx.Header("Content-Type", "text/html; charset=utf-8")
		ctx.Status(http.StatusOK)

		return v.Render(ctx.Writer)
	})
	if errors.Is(err, ErrNoData) {
		ctx.Header("Content-Type", "text/html; charset=utf-8")
		ctx.Status(http.StatusOK)
		err = mapview.Render(ctx.Writer, nil, mapview.Options{Region: s.cfg.Region})
	}

	if err != nil {
		fail(ctx, err)
	}
}

func (s *Server) getSummary(ctx *gin.Context) {
	var sum Summary

	err := s.withSession(func(cur *session) error {
		sum = s.summarize(cur.name, cur.result, cur.writer.Ledger().Len())

		return nil
	})
	if err != nil {
		fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, sum)
}

func (s *Server) listPoints(ctx *gin.Context) {
	var markers []mapview.Marker

	err := s.withSession(func(cur *session) error {
		var err error
		markers, err = mapview.Markers(cur.records, s.cfg.Region)

		return err
	})
	if err != nil {
		fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, markers)
}

func (s *Server) listCells(ctx *gin.Context) {
	res := mapview.DefaultResolution

	if raw := ctx.Query("res"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "res must be an integer"})

			return
		}

		res = n
	}

	var cells []mapview.Cell

	err := s.withSession(func(cur *session) error {
		var err error
		cells, err = mapview.Aggregate(cur.records, s.cfg.Region, res)

		return err
	})

	switch {
	case errors.Is(err, ErrNoData):
		fail(ctx, err)
	case err != nil:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusOK, cells)
	}
}

func (s *Server) getPreview(ctx *gin.Context) {
	var body gin.H

	err := s.withSession(func(cur *session) error {
		rows := cur.table.Rows
		if len(rows) > PreviewRows {
			rows = rows[:PreviewRows]
		}

		body = gin.H{"header": cur.table.Header, "rows": rows, "total": len(cur.table.Rows)}

		return nil
	})
	if err != nil {
		fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, body)
}

func (s *Server) upload(ctx *gin.Context) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "file form field is required"})

		return
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != ".csv" && ext != ".xlsx" && ext != ".xlsm" {
		fail(ctx, fmt.Errorf("%w: %s", store.ErrUnsupportedSource, fh.Filename))

		return
	}

	dir, err := os.MkdirTemp("", "pinmap-upload-")
	if err != nil {
		fail(ctx, err)

		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "upload"+ext)
	if err := ctx.SaveUploadedFile(fh, path); err != nil {
		fail(ctx, err)

		return
	}

	fs := store.NewFileStore(path, ctx.PostForm("sheet"), ctx.PostForm("charset"))

	// uploads are copies; write-backs go nowhere
	res, err := s.Load(ctx.Request.Context(), fh.Filename, fs, nil)
	if err != nil {
		fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, s.summarize(fh.Filename, res, 0))
}

type loadRequest struct {
	URI   string `json:"uri"`
	Sheet string `json:"sheet"`
}

func (s *Server) loadSource(ctx *gin.Context) {
	var req loadRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

			return
		}
	}

	if req.URI == "" {
		req.URI = ctx.Query("uri")
	}

	if req.URI == "" {
		req.URI = s.cfg.Source
	}

	if req.URI == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "no source configured"})

		return
	}

	opts := s.cfg.StoreOptions
	if req.Sheet != "" {
		opts.Sheet = req.Sheet
	}

	r, err := store.Open(ctx.Request.Context(), req.URI, opts)
	if err != nil {
		fail(ctx, err)

		return
	}

	w, _ := r.(store.Writer)

	res, err := s.Load(ctx.Request.Context(), req.URI, r, w)
	if err != nil {
		if c, ok := r.(io.Closer); ok {
			c.Close()
		}

		fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, s.summarize(req.URI, res, 0))
}

func (s *Server) geocode(ctx *gin.Context) {
	res, err := s.Geocode(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)

		return
	}

	var sum Summary

	_ = s.withSession(func(cur *session) error {
		sum = s.summarize(cur.name, res, cur.writer.Ledger().Len())

		return nil
	})

	ctx.JSON(http.StatusOK, sum)
}

func (s *Server) writeBack(ctx *gin.Context) {
	report, err := s.WriteBack(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"written":           report.Written,
		"already_persisted": report.AlreadyPersisted,
		"attempts":          report.Attempts,
	})
}

func (s *Server) export(ctx *gin.Context) {
	format := ctx.Param("format")

	var contentType, file string

	switch format {
	case "csv":
		contentType, file = "text/csv; charset=utf-8", "customers_with_coordinates.csv"
	case "xlsx":
		contentType, file = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "customers_with_coordinates.xlsx"
	case "html":
		contentType, file = "text/html; charset=utf-8", "map.html"
	default:
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown export format " + format})

		return
	}

	err := s.withSession(func(cur *session) error {
		ctx.Header("Content-Type", contentType)
		ctx.Header("Content-Disposition", `attachment; filename="`+file+`"`)
		ctx.Status(http.StatusOK)

		switch format {
		case "csv":
			return dataset.WriteCSV(ctx.Writer, cur.records)
		case "xlsx":
			return dataset.WriteXLSX(ctx.Writer, cur.records)
		default:
			return mapview.Render(ctx.Writer, cur.records, mapview.Options{Region: s.cfg.Region, Message: cur.result.Summary()})
		}
	})
	if err != nil {
		fail(ctx, err)
	}
}
