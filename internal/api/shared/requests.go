package shared

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// DecodeJSON reads the request body into v. Handlers validate the
// decoded struct themselves; this only guards the JSON layer.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
