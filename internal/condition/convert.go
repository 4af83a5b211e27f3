package condition

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// toValue converts v to a cty value via its JSON encoding. The round trip
// gives expressions their own copy of the data.
func toValue(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyjson.ImpliedType(buf)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(buf, ty)
}

// truthy coerces an expression result to a boolean.
func truthy(v cty.Value) (bool, error) {
	if !v.IsKnown() {
		return false, fmt.Errorf("expression result is unknown")
	}
	if v.IsNull() {
		return false, nil
	}
	switch ty := v.Type(); {
	case ty.Equals(cty.Bool):
		return v.True(), nil
	case ty.Equals(cty.Number):
		return v.AsBigFloat().Sign() != 0, nil
	case ty.Equals(cty.String):
		return v.AsString() != "", nil
	default:
		return true, nil
	}
}
