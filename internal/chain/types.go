package chain

import "encoding/json"

// TableQuery mirrors the /v1/chain/get_table_rows request.
type TableQuery struct {
	Code          string `json:"code"`
	Table         string `json:"table"`
	Scope         string `json:"scope"`
	Limit         int    `json:"limit"`
	LowerBound    string `json:"lower_bound"`
	UpperBound    string `json:"upper_bound"`
	IndexPosition string `json:"index_position,omitempty"`
	KeyType       string `json:"key_type,omitempty"`
	Reverse       bool   `json:"reverse"`
	JSON          bool   `json:"json"`
}

// TableRowsResult is one page of table rows.
type TableRowsResult struct {
	Rows    []json.RawMessage `json:"rows"`
	More    bool              `json:"more"`
	NextKey string            `json:"next_key"`
}

// Action is one contract action to submit.
type Action struct {
	Contract string
	Name     string
	Data     interface{}
}

// pushResponse is the JSON cleos prints for an accepted transaction.
type pushResponse struct {
	TransactionID string `json:"transaction_id"`
}

// errorResponse is the JSON shape cleos prints for a rejected transaction.
// The assertion message hides in the action trace's exception stack.
type errorResponse struct {
	Processed struct {
		ActionTraces []struct {
			Except struct {
				Message string `json:"message"`
				Stack   []struct {
					Data struct {
						S string `json:"s"`
					} `json:"data"`
				} `json:"stack"`
			} `json:"except"`
		} `json:"action_traces"`
	} `json:"processed"`
	Error struct {
		Details []struct {
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}
