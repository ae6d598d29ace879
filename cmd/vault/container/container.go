package container

import (
	"fmt"

	"github.com/pixelvault/vault/cmd/vault/repository"
	"github.com/pixelvault/vault/cmd/vault/service"
	"github.com/pixelvault/vault/common/bootstrap"
	"github.com/pixelvault/vault/common/ratelimit"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Repositories
	ImageRepo *repository.ImageRepository

	// Services
	StorageService *service.StorageService
	VisionClient   *service.GatewayVisionClient
	Analyzer       *service.AnalysisService
	UploadService  *service.UploadService
	SearchService  *service.SearchService
	ProxyPolicy    *service.ProxyPolicy
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	imageRepo := repository.NewImageRepository(components.DB)

	storageService, err := service.NewStorageService(cfg, components.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	// Nil when VISION_API_KEY is absent; the analyzer then always uses
	// the local heuristic.
	visionClient := service.NewGatewayVisionClient(cfg, log)
	var vision service.VisionCaller
	if visionClient != nil {
		vision = visionClient
	}
	analyzer := service.NewAnalysisService(vision, cfg, log)

	states := service.NewUploadStateStore(components.Redis, cfg.Upload.StateTTL)
	events := service.NewRedisEventPublisher(components.Redis, log)
	fetcher := service.NewHTTPByteFetcher(cfg.Upload.MaxBytes)
	limiter := ratelimit.NewRateLimiter(components.RedisRaw, log)

	uploadService := service.NewUploadService(
		imageRepo,
		storageService,
		analyzer,
		fetcher,
		states,
		events,
		limiter,
		components.Redis,
		components.Telemetry,
		cfg,
		log,
	)

	searchService, err := service.NewSearchService(imageRepo, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create search service: %w", err)
	}

	return &Container{
		Components:     components,
		ImageRepo:      imageRepo,
		StorageService: storageService,
		VisionClient:   visionClient,
		Analyzer:       analyzer,
		UploadService:  uploadService,
		SearchService:  searchService,
		ProxyPolicy:    service.NewProxyPolicy(cfg),
	}, nil
}
