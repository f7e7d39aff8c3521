// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

func main() {
	Execute()
}
