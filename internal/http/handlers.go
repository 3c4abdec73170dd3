package http

import (
	"net/http"

	"budgetly/internal/core"
	"budgetly/internal/services"
)

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request, c services.Caller) {
	q := r.URL.Query()
	sel, err := s.svc.Months(r.Context(), c, sanitizeInput(q.Get("anchor")), core.MonthKey(sanitizeInput(q.Get("active"))))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, c services.Caller) {
	summary, err := s.svc.Summary(r.Context(), c, monthParam(r, "month", s.currentMonth()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, c services.Caller) {
	month := monthParam(r, "month", s.currentMonth())
	drift, err := s.svc.VerifySpent(r.Context(), c, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if drift == nil {
		drift = []services.SpentDrift{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"month": month,
		"drift": drift,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, c services.Caller) {
	u, err := s.svc.User(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var body settingsBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.svc.SaveSettings(r.Context(), c, body.BaseCurrency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Categories

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, c services.Caller) {
	cats, err := s.svc.ListCategories(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var in services.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Name = sanitizeInput(in.Name)
	cat, err := s.svc.CreateCategory(r.Context(), c, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var patch services.CategoryPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Name != nil {
		name := sanitizeInput(*patch.Name)
		patch.Name = &name
	}
	cat, err := s.svc.UpdateCategory(r.Context(), c, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, c services.Caller) {
	removed, err := s.svc.DeleteCategory(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removedTransactions": removed})
}

func (s *Server) handleSetCategoryMonthBudget(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var body amountBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cat, err := s.svc.SetMonthBudget(r.Context(), c, r.PathValue("id"), pathMonth(r), body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) handleClearCategoryMonthBudget(w http.ResponseWriter, r *http.Request, c services.Caller) {
	cat, err := s.svc.ClearMonthBudget(r.Context(), c, r.PathValue("id"), pathMonth(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

// Budget-by-month

func (s *Server) handleGetMonthBudget(w http.ResponseWriter, r *http.Request, c services.Caller) {
	mb, err := s.svc.GetMonthBudget(r.Context(), c, pathMonth(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mb)
}

func (s *Server) handlePutMonthBudget(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var mb core.MonthBudget
	if err := decodeJSON(w, r, &mb); err != nil {
		writeError(w, r, err)
		return
	}
	mb.Month = pathMonth(r)
	out, err := s.svc.SetMonthBudgets(r.Context(), c, mb)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Transactions

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, c services.Caller) {
	txs, err := s.svc.ListTransactions(r.Context(), c, monthParam(r, "month", ""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var in services.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Description = sanitizeInput(in.Description)
	tx, err := s.svc.AddTransaction(r.Context(), c, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var in services.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Description = sanitizeInput(in.Description)
	tx, err := s.svc.UpdateTransaction(r.Context(), c, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, c services.Caller) {
	if err := s.svc.DeleteTransaction(r.Context(), c, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Income

func (s *Server) handleGetIncome(w http.ResponseWriter, r *http.Request, c services.Caller) {
	plan, err := s.svc.GetIncome(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleSetDefaultIncome(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var body amountBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.svc.SetDefaultIncome(r.Context(), c, body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleSetMonthIncome(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var body amountBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.svc.SetMonthIncome(r.Context(), c, pathMonth(r), body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Receipts

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request, c services.Caller) {
	receipts, err := s.svc.ListReceipts(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if receipts == nil {
		receipts = []core.Receipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request, c services.Caller) {
	var in services.ReceiptInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.MerchantName = sanitizeInput(in.MerchantName)
	receipt, err := s.svc.AddReceipt(r.Context(), c, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request, c services.Caller) {
	if err := s.svc.DeleteReceipt(r.Context(), c, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Currencies

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	list, fresh := s.svc.Currencies(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"currencies": list,
		"degraded":   !fresh,
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var body convertBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.Convert(r.Context(), body.Amount, body.From, body.To)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
