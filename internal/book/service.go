package book

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/oakshelf/library-lending-backend/internal/pkg/storage"
)

type CreateRequest struct {
	Title       string
	Author      string
	ISBN        *string
	Description *string
	Kind        string
	GenreID     *string
	TotalUnits  int
	LoanDays    *int
}

type UpdateRequest struct {
	Title       *string
	Author      *string
	ISBN        *string
	Description *string
	GenreID     *string
	LoanDays    *int
	Active      *bool
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Book, error)
	GetByID(ctx context.Context, id string) (*Book, error)
	List(ctx context.Context, filter Filter) ([]*Book, int, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Book, error)
	Delete(ctx context.Context, id string) error
	AddUnits(ctx context.Context, id string, n int) (*Book, error)
	RemoveUnits(ctx context.Context, id string, n int) (*Book, error)

	UploadCover(ctx context.Context, id string, header *multipart.FileHeader) (*Book, error)
	UploadFile(ctx context.Context, id string, header *multipart.FileHeader) (*Book, error)
	OpenCover(ctx context.Context, id string, thumbnail bool) (io.ReadCloser, error)
	OpenFile(ctx context.Context, id string) (io.ReadCloser, *Book, error)
}

type service struct {
	repo            Repository
	storage         storage.Storage
	imgProc         *storage.ImageProcessor
	defaultLoanDays int
}

func NewService(repo Repository, store storage.Storage, defaultLoanDays int) Service {
	return &service{
		repo:            repo,
		storage:         store,
		imgProc:         storage.NewImageProcessor(),
		defaultLoanDays: defaultLoanDays,
	}
}

func validKind(k string) bool {
	for _, v := range ValidKinds {
		if Kind(k) == v {
			return true
		}
	}
	return false
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Book, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrTitleRequired
	}
	if strings.TrimSpace(req.Author) == "" {
		return nil, ErrAuthorRequired
	}
	if !validKind(req.Kind) {
		return nil, ErrInvalidKind
	}
	if req.TotalUnits < 0 {
		return nil, ErrInvalidUnits
	}

	loanDays := s.defaultLoanDays
	if req.LoanDays != nil {
		if *req.LoanDays < 1 {
			return nil, ErrInvalidLoanDays
		}
		loanDays = *req.LoanDays
	}

	kind := Kind(req.Kind)
	totalUnits := req.TotalUnits
	if kind == KindDigital {
		// Digital-only titles carry no physical inventory.
		totalUnits = 0
	}

	b := &Book{
		Title:       strings.TrimSpace(req.Title),
		Author:      strings.TrimSpace(req.Author),
		ISBN:        req.ISBN,
		Description: req.Description,
		Kind:        kind,
		GenreID:     req.GenreID,
		TotalUnits:  totalUnits,
		LoanDays:    loanDays,
		Active:      true,
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Book, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Book, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest) (*Book, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, ErrTitleRequired
		}
		b.Title = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil {
		if strings.TrimSpace(*req.Author) == "" {
			return nil, ErrAuthorRequired
		}
		b.Author = strings.TrimSpace(*req.Author)
	}
	if req.ISBN != nil {
		b.ISBN = req.ISBN
	}
	if req.Description != nil {
		b.Description = req.Description
	}
	if req.GenreID != nil {
		if *req.GenreID == "" {
			b.GenreID = nil
		} else {
			b.GenreID = req.GenreID
		}
	}
	if req.LoanDays != nil {
		if *req.LoanDays < 1 {
			return nil, ErrInvalidLoanDays
		}
		b.LoanDays = *req.LoanDays
	}
	if req.Active != nil {
		b.Active = *req.Active
	}

	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	// A title with open claims stays; deactivate it instead.
	n, err := s.repo.CountActiveReservations(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrHasActiveReservations
	}

	return s.repo.Delete(ctx, id)
}

func (s *service) AddUnits(ctx context.Context, id string, n int) (*Book, error) {
	if n < 1 {
		return nil, ErrInvalidUnits
	}
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.HasPhysical() {
		return nil, ErrNotPhysical
	}
	return s.repo.AdjustUnits(ctx, id, n)
}

func (s *service) RemoveUnits(ctx context.Context, id string, n int) (*Book, error) {
	if n < 1 {
		return nil, ErrInvalidUnits
	}
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.HasPhysical() {
		return nil, ErrNotPhysical
	}
	return s.repo.AdjustUnits(ctx, id, -n)
}

func (s *service) UploadCover(ctx context.Context, id string, header *multipart.FileHeader) (*Book, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	fileBytes, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	fileID := uuid.New().String()

	// Sharding path: covers/ab/UUID.ext
	shard := fileID[:2]
	coverKey := fmt.Sprintf("covers/%s/%s%s", shard, fileID, ext)

	if err := s.storage.Save(ctx, coverKey, bytes.NewReader(fileBytes)); err != nil {
		return nil, fmt.Errorf("failed to save cover to storage: %w", err)
	}

	var thumbKey *string
	thumbReader, err := s.imgProc.GenerateThumbnail(bytes.NewReader(fileBytes), 200, 300)
	if err == nil {
		tKey := fmt.Sprintf("covers/%s/%s_thumb.jpg", shard, fileID)
		if err := s.storage.Save(ctx, tKey, thumbReader); err == nil {
			thumbKey = &tKey
		}
	}

	b.CoverKey = &coverKey
	b.ThumbKey = thumbKey
	if err := s.repo.SetMedia(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) UploadFile(ctx context.Context, id string, header *multipart.FileHeader) (*Book, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.HasDigital() {
		return nil, ErrNotDigital
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	fileID := uuid.New().String()
	shard := fileID[:2]
	fileKey := fmt.Sprintf("assets/%s/%s%s", shard, fileID, ext)

	if err := s.storage.Save(ctx, fileKey, src); err != nil {
		return nil, fmt.Errorf("failed to save asset to storage: %w", err)
	}

	b.FileKey = &fileKey
	if err := s.repo.SetMedia(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) OpenCover(ctx context.Context, id string, thumbnail bool) (io.ReadCloser, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := b.CoverKey
	if thumbnail && b.ThumbKey != nil {
		key = b.ThumbKey
	}
	if key == nil {
		return nil, ErrNoCover
	}

	return s.storage.Get(ctx, *key)
}

func (s *service) OpenFile(ctx context.Context, id string) (io.ReadCloser, *Book, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if b.FileKey == nil {
		return nil, nil, ErrNoDigitalFile
	}

	rc, err := s.storage.Get(ctx, *b.FileKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, b, nil
}
