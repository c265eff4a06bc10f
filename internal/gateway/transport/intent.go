// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import "net/http"

// HeaderIntentClassifier implements pipeline.IntentClassifier by reading a
// single request header (spec.md §6: "intent is read from a header, not
// inferred from the body"). A missing header yields "", which Policy
// treats as matching any upstream.
type HeaderIntentClassifier struct {
	Header string
}

// NewHeaderIntentClassifier defaults Header to X-Dao-Intent.
func NewHeaderIntentClassifier(header string) HeaderIntentClassifier {
	if header == "" {
		header = "X-Dao-Intent"
	}
	return HeaderIntentClassifier{Header: header}
}

func (c HeaderIntentClassifier) Classify(h http.Header) string {
	return h.Get(c.Header)
}
