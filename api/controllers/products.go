package controllers

import (
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const imagesFormField = "images"

func ListProducts(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := productListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, meta, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, list, meta)
	}
}

func productListQuery(r *http.Request) (product.ListQuery, error) {
	q := r.URL.Query()
	page, err := pageFromQuery(r)
	if err != nil {
		return product.ListQuery{}, err
	}
	category, err := validators.ParseQueryUUIDPtr(r, "category")
	if err != nil {
		return product.ListQuery{}, err
	}
	seller, err := validators.ParseQueryUUIDPtr(r, "seller")
	if err != nil {
		return product.ListQuery{}, err
	}
	minPrice, err := validators.ParseQueryInt64Ptr(r, "minPrice", 0)
	if err != nil {
		return product.ListQuery{}, err
	}
	maxPrice, err := validators.ParseQueryInt64Ptr(r, "maxPrice", 0)
	if err != nil {
		return product.ListQuery{}, err
	}
	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		return product.ListQuery{}, pkgerrors.New(pkgerrors.CodeValidation, "minPrice must not exceed maxPrice")
	}
	sort, err := enums.ParseProductSort(q.Get("sort"))
	if err != nil {
		return product.ListQuery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort").WithDetails(map[string]any{"field": "sort"})
	}
	order, err := enums.ParseSortOrder(q.Get("order"))
	if err != nil {
		return product.ListQuery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order").WithDetails(map[string]any{"field": "order"})
	}
	return product.ListQuery{
		Q:             q.Get("q"),
		CategoryID:    category,
		SellerID:      seller,
		MinPriceCents: minPrice,
		MaxPriceCents: maxPrice,
		Sort:          sort,
		Order:         order,
		Page:          page,
	}, nil
}

// GetProduct runs behind OptionalAuth so owners and admins can see inactive listings.
func GetProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Get(r.Context(), principalFrom(r), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func CreateProduct(svc product.Service, maxUploadMB int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		var (
			req    product.CreateProductRequest
			images []product.ImageUpload
		)
		if isMultipart(r) {
			form, err := parseProductForm(w, r, maxUploadMB)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			defer form.RemoveAll()
			if req, err = createRequestFromForm(form); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if err := validators.ValidateStruct(req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			uploads, closeAll, err := formImages(form)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			defer closeAll()
			images = uploads
		} else if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Create(r.Context(), principal, req, images)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

func UpdateProduct(svc product.Service, maxUploadMB int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var (
			req    product.UpdateProductRequest
			images []product.ImageUpload
		)
		if isMultipart(r) {
			form, err := parseProductForm(w, r, maxUploadMB)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			defer form.RemoveAll()
			if req, err = updateRequestFromForm(form); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if err := validators.ValidateStruct(req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			uploads, closeAll, err := formImages(form)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			defer closeAll()
			images = uploads
		} else if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Update(r.Context(), principal, id, req, images)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func DeleteProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), principal, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "product deleted", nil)
	}
}

// SetProductActive backs both the activate and deactivate routes.
func SetProductActive(svc product.Service, active bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.SetActive(r.Context(), principal, id, active)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func parseProductForm(w http.ResponseWriter, r *http.Request, maxUploadMB int) (*multipart.Form, error) {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	limit := int64(maxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return r.MultipartForm, nil
}

// formImages opens every uploaded image; the returned func closes them.
func formImages(form *multipart.Form) ([]product.ImageUpload, func(), error) {
	headers := form.File[imagesFormField]
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	uploads := make([]product.ImageUpload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable image upload")
		}
		files = append(files, f)
		uploads = append(uploads, product.ImageUpload{
			ContentType: header.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}

func createRequestFromForm(form *multipart.Form) (product.CreateProductRequest, error) {
	req := product.CreateProductRequest{
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
	}
	var err error
	if req.PriceCents, err = formInt64(form, "price_cents"); err != nil {
		return req, err
	}
	stock, err := formInt64(form, "stock")
	if err != nil {
		return req, err
	}
	req.Stock = int(stock)
	if req.CategoryIDs, err = formUUIDs(form, "category_ids"); err != nil {
		return req, err
	}
	if raw := formValue(form, "is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return req, fieldError("is_active", "must be a boolean")
		}
		req.IsActive = &active
	}
	return req, nil
}

func updateRequestFromForm(form *multipart.Form) (product.UpdateProductRequest, error) {
	var req product.UpdateProductRequest
	if _, ok := form.Value["title"]; ok {
		title := formValue(form, "title")
		req.Title = &title
	}
	if _, ok := form.Value["description"]; ok {
		description := formValue(form, "description")
		req.Description = &description
	}
	if formValue(form, "price_cents") != "" {
		price, err := formInt64(form, "price_cents")
		if err != nil {
			return req, err
		}
		req.PriceCents = &price
	}
	if formValue(form, "stock") != "" {
		stock, err := formInt64(form, "stock")
		if err != nil {
			return req, err
		}
		n := int(stock)
		req.Stock = &n
	}
	if _, ok := form.Value["category_ids"]; ok {
		ids, err := formUUIDs(form, "category_ids")
		if err != nil {
			return req, err
		}
		req.CategoryIDs = &ids
	}
	return req, nil
}

func formValue(form *multipart.Form, key string) string {
	values := form.Value[key]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func formInt64(form *multipart.Form, key string) (int64, error) {
	raw := formValue(form, key)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fieldError(key, "must be an integer")
	}
	return value, nil
}

// formUUIDs accepts repeated fields as well as one comma separated value.
func formUUIDs(form *multipart.Form, key string) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	for _, value := range form.Value[key] {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return nil, fieldError(key, "must contain uuids")
			}
			out = append(out, id)
		}
	}
	return out, nil
}

func fieldError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, field+" "+msg).WithDetails(map[string]any{"field": field})
}
