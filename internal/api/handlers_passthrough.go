/**
 * @description
 * Pass-through handlers for the stateless collaborator endpoints: bank
 * account resolution, bill purchases/requery, and image uploads. Their
 * contract is uniform: forward the request to the provider, return the
 * provider's payload, and map provider or network failure to a 500 with a
 * human-readable message extracted from the provider's error envelope.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - pkg/vtpass, pkg/cloudinary: Provider clients.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// ResolveBankHandler resolves an account number and bank code to an account
// name via the payment gateway.
func (h *Handlers) ResolveBankHandler(w http.ResponseWriter, r *http.Request) {
	accountNumber := strings.TrimSpace(r.URL.Query().Get("account_number"))
	bankCode := strings.TrimSpace(r.URL.Query().Get("bank_code"))
	if accountNumber == "" || bankCode == "" {
		writeError(w, http.StatusBadRequest, "account_number and bank_code are required")
		return
	}

	data, err := h.gateway.ResolveAccount(r.Context(), accountNumber, bankCode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, providerMessage(err, "could not resolve account"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": data})
}

// PurchaseBillHandler forwards a bill purchase payload to the aggregator.
func (h *Handlers) PurchaseBillHandler(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if allowed, retryAfter := h.service.AllowPurchase(r.Context(), userID); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, "too many purchase attempts; slow down")
		return
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "purchase payload is required")
		return
	}

	body, err := h.bills.Pay(r.Context(), payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, providerMessage(err, "could not complete purchase"))
		return
	}

	writeRawJSON(w, http.StatusOK, body)
}

// RequeryBillHandler fetches the status of a previously submitted purchase.
func (h *Handlers) RequeryBillHandler(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.URL.Query().Get("request_id"))
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "request_id is required")
		return
	}

	body, err := h.bills.Requery(r.Context(), requestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, providerMessage(err, "could not requery purchase"))
		return
	}

	writeRawJSON(w, http.StatusOK, body)
}

// maxUploadBytes bounds image upload request bodies.
const maxUploadBytes = 10 << 20

// UploadImageHandler stores an image with the image host, cleaning up the
// previous image first when the client names one.
func (h *Handlers) UploadImageHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	if oldPublicID := strings.TrimSpace(r.FormValue("old_public_id")); oldPublicID != "" {
		// Best-effort cleanup of the replaced image; a failure here must
		// not block the new upload.
		if err := h.images.Destroy(r.Context(), oldPublicID); err != nil {
			log.Printf("level=warn component=api msg=\"old image cleanup failed\" public_id=%s err=%v", oldPublicID, err)
		}
	}

	folder := strings.TrimSpace(r.FormValue("folder"))
	if folder == "" {
		folder = "uploads"
	}

	result, err := h.images.Upload(r.Context(), file, header.Filename, folder)
	if err != nil {
		writeError(w, http.StatusInternalServerError, providerMessage(err, "could not upload image"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": result})
}
