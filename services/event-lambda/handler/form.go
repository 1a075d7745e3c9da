package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/shopspring/decimal"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/middleware"
	"github.com/event-admin-services/services/event-lambda/models"
)

// Upload limits of the event form
const (
	MaxImages     = 5
	MaxImageBytes = 5 << 20
	maxFormBytes  = MaxImages*MaxImageBytes + 1<<20
	maxNameLength = 200
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type rawForm struct {
	values map[string]string
	images []models.Image
}

// ParseEventForm reads a create/edit submission, multipart or JSON, and
// validates it against now. loc is used for times without an offset.
func ParseEventForm(request events.APIGatewayProxyRequest, now time.Time, loc *time.Location) (models.EventForm, error) {
	raw, err := readForm(request)
	if err != nil {
		return models.EventForm{}, err
	}
	return buildForm(raw, now, loc)
}

func readForm(request events.APIGatewayProxyRequest) (*rawForm, error) {
	mediaType, params, _ := mime.ParseMediaType(middleware.Header(request, "Content-Type"))
	if mediaType != "multipart/form-data" {
		return readJSONForm(request)
	}

	body := []byte(request.Body)
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			return nil, apperrors.ValidationError("Invalid request body")
		}
		body = decoded
	}
	if len(body) > maxFormBytes {
		return nil, apperrors.ValidationError("Upload is too large")
	}

	raw := &rawForm{values: map[string]string{}}
	errs := apperrors.FieldErrors{}
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.ValidationError("Invalid multipart body")
		}
		data, err := io.ReadAll(io.LimitReader(part, MaxImageBytes+1))
		if err != nil {
			return nil, apperrors.ValidationError("Invalid multipart body")
		}

		if part.FileName() == "" {
			raw.values[part.FormName()] = string(data)
			continue
		}
		if part.FormName() != "images" {
			continue
		}
		if len(data) > MaxImageBytes {
			errs.Add("images", part.FileName()+" is larger than 5 MB")
			continue
		}
		contentType := http.DetectContentType(data)
		if !allowedImageTypes[contentType] {
			errs.Add("images", part.FileName()+" must be a JPEG, PNG or WebP image")
			continue
		}
		raw.images = append(raw.images, models.Image{Name: part.FileName(), ContentType: contentType, Data: data})
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return raw, nil
}

// readJSONForm accepts the same fields as a JSON object, without uploads
func readJSONForm(request events.APIGatewayProxyRequest) (*rawForm, error) {
	var doc map[string]json.RawMessage
	if err := middleware.BindJSON(request, &doc); err != nil {
		return nil, err
	}
	raw := &rawForm{values: map[string]string{}}
	for k, v := range doc {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			raw.values[k] = s
			continue
		}
		raw.values[k] = string(v)
	}
	return raw, nil
}

func buildForm(raw *rawForm, now time.Time, loc *time.Location) (models.EventForm, error) {
	errs := apperrors.FieldErrors{}
	v := func(key string) string { return strings.TrimSpace(raw.values[key]) }

	form := models.EventForm{
		Name:        v("name"),
		Description: v("description"),
		Location:    v("location"),
		CategoryID:  v("categoryId"),
		Images:      raw.images,
	}

	switch {
	case form.Name == "":
		errs.Add("name", "Event name is required")
	case len([]rune(form.Name)) > maxNameLength:
		errs.Add("name", "Event name must be at most 200 characters")
	}
	if form.Description == "" {
		errs.Add("description", "Description is required")
	}
	if form.Location == "" {
		errs.Add("location", "Location is required")
	}
	if form.CategoryID == "" {
		errs.Add("categoryId", "Category is required")
	}

	start, startErr := ParseEventTime(v("startTime"), loc)
	if startErr != nil {
		errs.Add("startTime", "Start time is required")
	}
	end, endErr := ParseEventTime(v("endTime"), loc)
	if endErr != nil {
		errs.Add("endTime", "End time is required")
	}
	if startErr == nil && endErr == nil {
		if err := ValidateEventTime(start, end, now); err != nil {
			var tve *TimeValidationError
			if errors.As(err, &tve) {
				errs.Add(tve.Field, tve.Message)
			}
		}
	}
	form.StartTime, form.EndTime = start, end

	price, err := decimal.NewFromString(v("price"))
	switch {
	case err != nil:
		errs.Add("price", "Price must be a number")
	case price.IsNegative():
		errs.Add("price", "Price cannot be negative")
	}
	form.Price = price.Round(2)

	seats, err := strconv.Atoi(v("seatCount"))
	if err != nil || seats <= 0 {
		errs.Add("seatCount", "Seat count must be a positive number")
	}
	form.SeatCount = seats

	if lat, lon := v("latitude"), v("longitude"); lat != "" || lon != "" {
		la, err1 := strconv.ParseFloat(lat, 64)
		lo, err2 := strconv.ParseFloat(lon, 64)
		if err1 != nil || err2 != nil || la < -90 || la > 90 || lo < -180 || lo > 180 {
			errs.Add("location", "Coordinates are invalid")
		}
		form.Latitude, form.Longitude = la, lo
	}

	if s := v("speakers"); s != "" {
		if err := json.Unmarshal([]byte(s), &form.Speakers); err != nil {
			errs.Add("speakers", "Speakers are invalid")
		}
	}
	for _, sp := range form.Speakers {
		if strings.TrimSpace(sp.Name) == "" {
			errs.Add("speakers", "Every speaker needs a name")
			break
		}
	}
	if form.Speakers == nil {
		form.Speakers = []models.Speaker{}
	}

	if s := v("keepImages"); s != "" {
		if err := json.Unmarshal([]byte(s), &form.KeepImages); err != nil {
			errs.Add("images", "Kept images are invalid")
		}
	}
	if len(form.Images)+len(form.KeepImages) > MaxImages {
		errs.Add("images", "An event can have at most 5 images")
	}

	if err := errs.Err(); err != nil {
		return models.EventForm{}, err
	}
	return form, nil
}
