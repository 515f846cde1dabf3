package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/multiviral/api/internal/model"
	"github.com/multiviral/api/internal/service"
	"github.com/multiviral/api/pkg/response"
)

type UploadHandler struct {
	service   *service.UploadService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.UploadService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// File handles POST /api/upload
// @Summary      Upload media
// @Description  Upload an audio or video file and create a job for it
// @Tags         Upload
// @Accept       multipart/form-data
// @Produce      json
// @Param        file                formData file   true  "Audio or video file"
// @Param        transcript_language query    string false "Spoken language hint (default ja, or auto)"
// @Param        output_language     query    string false "same | translate-to-primary"
// @Success      200 {object} model.UploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/upload [post]
func (h *UploadHandler) File(c *fiber.Ctx) error {
	transcriptLang, output, err := languageParams(c.Query("transcript_language"), c.Query("output_language"))
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > service.MaxUploadSize {
		return response.ValidationError(c, "File size exceeds 500MB limit", map[string]interface{}{
			"maxSize":  service.MaxUploadSize,
			"fileSize": file.Size,
		})
	}

	if !service.IsSupportedUpload(file.Filename) {
		return response.ValidationError(c, "Unsupported file type", map[string]interface{}{
			"filename": file.Filename,
		})
	}

	src, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read uploaded file")
	}
	defer src.Close()

	result, err := h.service.UploadFile(c.UserContext(), file.Filename, src, transcriptLang, output)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// YouTube handles POST /api/upload/youtube
// @Summary      Register a video URL
// @Description  Create a job for a remote video. The URL is checked when the pipeline runs.
// @Tags         Upload
// @Accept       json
// @Produce      json
// @Param        request body model.YouTubeRequest true "Video URL request"
// @Success      200 {object} model.YouTubeResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/upload/youtube [post]
func (h *UploadHandler) YouTube(c *fiber.Ctx) error {
	var req model.YouTubeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	transcriptLang, output, err := languageParams(req.TranscriptLanguage, req.OutputLanguage)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}
	req.TranscriptLanguage = transcriptLang
	req.OutputLanguage = string(output)

	result, err := h.service.RegisterURL(c.UserContext(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// languageParams applies defaults and rejects malformed language values.
func languageParams(transcriptLang, output string) (string, model.OutputLanguage, error) {
	transcriptLang = strings.TrimSpace(transcriptLang)
	if transcriptLang == "" {
		transcriptLang = model.DefaultTranscriptLanguage
	}
	if !service.ValidLanguageHint(transcriptLang) {
		return "", "", errors.New("transcript_language must be a language code or auto")
	}

	output = strings.TrimSpace(output)
	switch {
	case output == "":
		return transcriptLang, model.OutputSame, nil
	case output == string(model.OutputSame), output == string(model.OutputPrimary):
		return transcriptLang, model.OutputLanguage(output), nil
	case service.ValidLanguageHint(output) && !strings.EqualFold(output, model.LanguageAuto):
		// a language code is kept as given and resolved at generation time
		return transcriptLang, model.OutputLanguage(output), nil
	}
	return "", "", errors.New("output_language must be same, translate-to-primary or a language code")
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		out := make(map[string]string)
		for _, e := range validationErrors {
			out[e.Field()] = e.Tag()
		}
		return out
	}
	return nil
}
