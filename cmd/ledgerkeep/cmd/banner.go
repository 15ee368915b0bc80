package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _          _                 _                   
 | | ___  __| | __ _  ___ _ __| | _____  ___ _ __  
 | |/ _ \/ _` + "`" + ` |/ _` + "`" + ` |/ _ \ '__| |/ / _ \/ _ \ '_ \ 
 | |  __/ (_| | (_| |  __/ |  |   <  __/  __/ |_) |
 |_|\___|\__,_|\__, |\___|_|  |_|\_\___|\___| .__/ 
               |___/                        |_|    
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Credential Vault - Version %s\x1b[0m\n\n", Version)
}
