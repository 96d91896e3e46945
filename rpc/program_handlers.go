package rpc

import (
	"math/big"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"bountyvault/native/escrow"
)

type programInitParams struct {
	ProgramID string `json:"programId"`
	Admin     string `json:"admin"`
	Token     string `json:"token"`
}

type programLockParams struct {
	ProgramID string `json:"programId"`
	Amount    string `json:"amount"`
}

type programPayoutParams struct {
	Caller    string `json:"caller"`
	ProgramID string `json:"programId"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type programBatchPayoutParams struct {
	Caller     string   `json:"caller"`
	ProgramID  string   `json:"programId"`
	Recipients []string `json:"recipients"`
	Amounts    []string `json:"amounts"`
}

type programIDParams struct {
	ProgramID string `json:"programId"`
}

type programJSON struct {
	ProgramID        string `json:"programId"`
	Admin            string `json:"admin"`
	Token            string `json:"token"`
	TotalFunds       string `json:"totalFunds"`
	RemainingBalance string `json:"remainingBalance"`
}

func programToJSON(prog *escrow.Program) programJSON {
	out := programJSON{
		ProgramID: prog.ProgramID,
		Admin:     strings.ToLower(ethcommon.Address(prog.Admin).Hex()),
		Token:     prog.Token,
	}
	if prog.TotalFunds != nil {
		out.TotalFunds = prog.TotalFunds.String()
	}
	if prog.RemainingBalance != nil {
		out.RemainingBalance = prog.RemainingBalance.String()
	}
	return out
}

func (s *Server) handleProgramInit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params programInitParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	admin, err := parseAddress(params.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.InitializeProgram(params.ProgramID, admin, params.Token); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleProgramLock(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params programLockParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.LockProgramFunds(params.ProgramID, amount); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleProgramPayout(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params programPayoutParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SinglePayout(caller, params.ProgramID, recipient, amount); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleProgramBatchPayout(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params programBatchPayoutParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	recipients := make([][20]byte, 0, len(params.Recipients))
	for _, raw := range params.Recipients {
		addr, err := parseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
			return
		}
		recipients = append(recipients, addr)
	}
	amounts := make([]*big.Int, 0, len(params.Amounts))
	for _, raw := range params.Amounts {
		amount, err := parsePositiveBigInt(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
			return
		}
		amounts = append(amounts, amount)
	}
	if err := s.node.BatchPayout(caller, params.ProgramID, recipients, amounts); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleProgramInfo(w http.ResponseWriter, req *RPCRequest) {
	var params programIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	prog, err := s.node.ProgramInfo(params.ProgramID)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, programToJSON(prog))
}

func (s *Server) handleProgramRemaining(w http.ResponseWriter, req *RPCRequest) {
	var params programIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	remaining, err := s.node.ProgramRemainingBalance(params.ProgramID)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, remaining.String())
}
