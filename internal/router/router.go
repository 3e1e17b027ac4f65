package router

import (
	"net/http"
	"tenderprep/internal/controller"
)

func NewRouter(c *controller.Controller) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", c.Ping)

	mux.HandleFunc("POST /api/preps/new", c.NewPrep)
	mux.HandleFunc("GET /api/preps/{prepId}", c.GetPrep)
	mux.HandleFunc("PATCH /api/preps/{prepId}/edit", c.EditPrep)
	mux.HandleFunc("GET /api/preps/{prepId}/editable", c.Editable)

	mux.HandleFunc("POST /api/preps/{prepId}/lock", c.AcquireLock)
	mux.HandleFunc("DELETE /api/preps/{prepId}/lock", c.ReleaseLock)
	mux.HandleFunc("GET /api/preps/{prepId}/lock", c.InspectLock)

	mux.HandleFunc("POST /api/preps/{prepId}/approve", c.OfficerApprove)
	mux.HandleFunc("DELETE /api/preps/{prepId}/approve", c.WithdrawApproval)
	mux.HandleFunc("POST /api/preps/{prepId}/decision", c.ManagerDecision)
	mux.HandleFunc("GET /api/preps/{prepId}/approvals", c.ApprovalHistory)

	mux.HandleFunc("POST /api/preps/{prepId}/sign", c.Sign)
	mux.HandleFunc("DELETE /api/preps/{prepId}/sign", c.Unsign)
	mux.HandleFunc("POST /api/preps/{prepId}/submit", c.Submit)
	mux.HandleFunc("PUT /api/preps/{prepId}/comment", c.UpdateComment)
	mux.HandleFunc("GET /api/preps/{prepId}/signoffs", c.Signoffs)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("page not found"))
	})

	cors := http.NewServeMux()
	cors.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Accept", "*/*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
		} else {
			mux.ServeHTTP(w, r)
		}
	})

	return cors
}
