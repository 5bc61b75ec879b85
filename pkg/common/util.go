//
//  Copyright © Trustline Inc. All rights reserved.
//

package common

import (
	"encoding/json"
	"fmt"
	"math"
)

// PrettyPrint outputs a readable JSON representation of the provided data structure.
func PrettyPrint(data interface{}) {
	p, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		fmt.Println(err)
	} else {
		fmt.Printf("%s \n", p)
	}
}

// Clamp01 clamps v into the closed unit interval.
func Clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
