package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/supermarx/karl/internal/facade"
	"github.com/supermarx/karl/internal/store"
)

type handlers struct {
	f   *facade.Facade
	log *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an abstract error Kind to an HTTP status; content
// negotiation is the gateway's job, not this adapter's. It always answers
// in JSON.
func writeError(w http.ResponseWriter, err error) {
	var kerr *store.Error
	if !errors.As(err, &kerr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "state_unexpected"})
		return
	}

	status := http.StatusInternalServerError
	switch kerr.Kind {
	case store.KindNotFound:
		status = http.StatusNotFound
	case store.KindAuthenticationError:
		status = http.StatusUnauthorized
	case store.KindSessionInvalid, store.KindSessionExpected:
		status = http.StatusUnauthorized
	case store.KindIntegrityViolation:
		status = http.StatusConflict
	case store.KindBackendDown:
		status = http.StatusServiceUnavailable
	case store.KindLogic:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": string(kerr.Kind)})
}

func supermarketIDParam(r *http.Request) (store.SupermarketID, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, "supermarket"), 10, 64)
	if err != nil {
		return 0, err
	}
	return store.SupermarketID(v), nil
}

func (h *handlers) getProducts(w http.ResponseWriter, r *http.Request) {
	sm, err := supermarketIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path_unknown"})
		return
	}
	products, err := h.f.GetProducts(r.Context(), sm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handlers) getProductsByName(w http.ResponseWriter, r *http.Request) {
	sm, err := supermarketIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path_unknown"})
		return
	}
	products, err := h.f.GetProductsByName(r.Context(), sm, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	sm, err := supermarketIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path_unknown"})
		return
	}
	p, err := h.f.GetProduct(r.Context(), sm, chi.URLParam(r, "identifier"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) getProductHistory(w http.ResponseWriter, r *http.Request) {
	sm, err := supermarketIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path_unknown"})
		return
	}
	hist, err := h.f.GetProductHistory(r.Context(), sm, chi.URLParam(r, "identifier"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (h *handlers) getRecentProductlog(w http.ResponseWriter, r *http.Request) {
	sm, err := supermarketIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path_unknown"})
		return
	}
	log, err := h.f.GetRecentProductlog(r.Context(), sm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (h *handlers) getProductclass(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path_unknown"})
		return
	}
	pc, err := h.f.GetProductclass(r.Context(), store.ProductclassID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

// checkPermissions lets clients (and operators) see whether this
// deployment enforces sessions at all.
func (h *handlers) checkPermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"check_permissions": h.f.CheckPermissions()})
}

func (h *handlers) getTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.f.GetTags(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// addProductPayload is the wire shape of one crawler observation.
type addProductPayload struct {
	Identifier     string    `json:"identifier"`
	Name           string    `json:"name"`
	Volume         int       `json:"volume"`
	VolumeMeasure  string    `json:"volume_measure"`
	OrigPrice      int       `json:"orig_price"`
	Price          int       `json:"price"`
	DiscountAmount int       `json:"discount_amount"`
	ValidOn        time.Time `json:"valid_on"`
	RetrievedOn    time.Time `json:"retrieved_on"`
	Confidence     string    `json:"confidence"`
	Problems       []string  `json:"problems"`
}

func (h *handlers) addProduct(w http.ResponseWriter, r *http.Request) {
	sm, err := supermarketIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path_unknown"})
		return
	}

	var payload addProductPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}

	in := store.AddProductInput{
		Product: store.ProductBase{
			Identifier:    payload.Identifier,
			Name:          payload.Name,
			Volume:        payload.Volume,
			VolumeMeasure: store.VolumeMeasure(payload.VolumeMeasure),
		},
		OrigPrice:      payload.OrigPrice,
		Price:          payload.Price,
		DiscountAmount: payload.DiscountAmount,
		ValidOn:        payload.ValidOn,
		RetrievedOn:    payload.RetrievedOn,
		Confidence:     store.Confidence(payload.Confidence),
		Problems:       payload.Problems,
	}

	if err := h.f.AddProduct(r.Context(), sessionTokenFrom(r), sm, in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type addImageCitationPayload struct {
	Identifier  string    `json:"identifier"`
	OriginalURI string    `json:"original_uri"`
	SourceURI   string    `json:"source_uri"`
	RetrievedOn time.Time `json:"retrieved_on"`
	ImageBase64 string    `json:"image_base64"`
}

func (h *handlers) addProductImageCitation(w http.ResponseWriter, r *http.Request) {
	sm, err := supermarketIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path_unknown"})
		return
	}

	var payload addImageCitationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}

	data, err := decodeImageBase64(payload.ImageBase64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}

	id, err := h.f.AddProductImageCitation(r.Context(), sessionTokenFrom(r), sm, payload.Identifier, payload.OriginalURI, payload.SourceURI, payload.RetrievedOn, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"imagecitation_id": int64(id)})
}

type absorbPayload struct {
	Src int64 `json:"src"`
	Dst int64 `json:"dst"`
}

func (h *handlers) absorbProductclass(w http.ResponseWriter, r *http.Request) {
	var payload absorbPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}
	err := h.f.AbsorbProductclass(r.Context(), sessionTokenFrom(r), store.ProductclassID(payload.Src), store.ProductclassID(payload.Dst))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type namePayload struct {
	Name          string `json:"name"`
	TagcategoryID int64  `json:"tagcategory_id"`
}

func (h *handlers) findAddTagcategory(w http.ResponseWriter, r *http.Request) {
	var payload namePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}
	id, err := h.f.FindAddTagcategory(r.Context(), sessionTokenFrom(r), payload.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": int64(id)})
}

func (h *handlers) findAddTag(w http.ResponseWriter, r *http.Request) {
	var payload namePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}
	id, err := h.f.FindAddTag(r.Context(), sessionTokenFrom(r), store.TagcategoryID(payload.TagcategoryID), payload.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": int64(id)})
}

type bindTagPayload struct {
	ProductclassID int64 `json:"productclass_id"`
	TagID          int64 `json:"tag_id"`
}

func (h *handlers) bindTag(w http.ResponseWriter, r *http.Request) {
	var payload bindTagPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}
	if err := h.f.BindTag(r.Context(), sessionTokenFrom(r), store.ProductclassID(payload.ProductclassID), store.TagID(payload.TagID)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type setTagParentPayload struct {
	TagID    int64  `json:"tag_id"`
	ParentID *int64 `json:"parent_id"`
}

func (h *handlers) updateTagSetParent(w http.ResponseWriter, r *http.Request) {
	var payload setTagParentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}
	var parentID *store.TagID
	if payload.ParentID != nil {
		p := store.TagID(*payload.ParentID)
		parentID = &p
	}
	if err := h.f.UpdateTagSetParent(r.Context(), sessionTokenFrom(r), store.TagID(payload.TagID), parentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) absorbTag(w http.ResponseWriter, r *http.Request) {
	var payload absorbPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}
	if err := h.f.AbsorbTag(r.Context(), sessionTokenFrom(r), store.TagID(payload.Src), store.TagID(payload.Dst)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type generateSessionticketPayload struct {
	Username string `json:"username"`
}

func (h *handlers) generateSessionticket(w http.ResponseWriter, r *http.Request) {
	var payload generateSessionticketPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}
	st, err := h.f.GenerateSessionticket(r.Context(), payload.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ticket_id": strconv.FormatInt(int64(st.ID), 10),
		"nonce":     hex.EncodeToString(st.Nonce),
		"salt":      hex.EncodeToString(st.Salt),
	})
}

type createSessionPayload struct {
	TicketID       int64  `json:"ticket_id"`
	TicketPassword string `json:"ticket_password"`
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var payload createSessionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}
	ticketPassword, err := hex.DecodeString(payload.TicketPassword)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload_expected"})
		return
	}
	token, err := h.f.CreateSession(r.Context(), store.SessionticketID(payload.TicketID), ticketPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": hex.EncodeToString(token)})
}
