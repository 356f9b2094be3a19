package httpserver

import (
	"fmt"
	"net/http"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/labstack/echo/v4"
)

type statusResponse struct {
	Status         string   `json:"status"`
	Runtime        string   `json:"runtime"`
	Device         string   `json:"device"`
	CUDAAvailable  bool     `json:"cuda_available"`
	GPUName        *string  `json:"gpu_name"`
	LoadedSessions []string `json:"loaded_sessions"`
}

func (s *Server) handleStatus(c echo.Context) error {
	loaded := s.sessions.Loaded()
	keys := make([]string, 0, len(loaded))
	for _, k := range loaded {
		keys = append(keys, k.String())
	}

	resp := statusResponse{
		Status:         "running",
		Runtime:        s.runtimeName,
		Device:         s.device.Kind,
		CUDAAvailable:  s.device.Kind == domain.DeviceCUDA && s.device.Available,
		LoadedSessions: keys,
	}
	if resp.CUDAAvailable && s.device.Name != "" {
		name := s.device.Name
		resp.GPUName = &name
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write status response: %w", err)
	}
	return nil
}

type modelResponse struct {
	Name         domain.ModelName    `json:"name"`
	NativeScale  int                 `json:"native_scale"`
	Arch         domain.Arch         `json:"arch"`
	WeightsFile  string              `json:"weights_file"`
	Weights      domain.WeightsState `json:"weights"`
	LoadedScales []int               `json:"loaded_scales"`
}

func (s *Server) handleModels(c echo.Context) error {
	loaded := make(map[domain.ModelName][]int)
	for _, k := range s.sessions.Loaded() {
		loaded[k.Model] = append(loaded[k.Model], k.Scale)
	}

	catalog := domain.Catalog()
	models := make([]modelResponse, 0, len(catalog))
	for _, spec := range catalog {
		scales := loaded[spec.Name]
		if scales == nil {
			scales = []int{}
		}
		models = append(models, modelResponse{
			Name:         spec.Name,
			NativeScale:  spec.NativeScale,
			Arch:         spec.Arch,
			WeightsFile:  spec.WeightsFile,
			Weights:      s.weights.Status(spec),
			LoadedScales: scales,
		})
	}

	if err := c.JSON(http.StatusOK, map[string]any{"models": models}); err != nil {
		return fmt.Errorf("failed to write models response: %w", err)
	}
	return nil
}
