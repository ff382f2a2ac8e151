// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package format_test

import (
	"fmt"

	"github.com/false-schemers/wcpl-sub001/format"
)

func ExampleSnprintf() {
	buf := make([]byte, 8)
	n := format.Snprintf(buf, "%s has %d items", format.Str("cart"), format.Int(12))
	fmt.Printf("%q %d\n", buf, n)
	// Output: "cart ha\x00" 17
}

func ExampleSprintf() {
	fmt.Println(format.Sprintf("[%-6s|%6.2f|%#x|%g]",
		format.Str("id"), format.Float(3.14159), format.Uint(48879), format.Float(1e6)))
	// Output: [id    |  3.14|0xbeef|1e+06]
}
