package cmd

import (
	"fmt"
)

const banner = `
           _ _ _       _    
 ___ _   _(_) (_)_ __ | | __
/ __| | | | | | | '_ \| |/ /
\__ \ |_| | | | | | | |   < 
|___/\__,_|_|_|_|_| |_|_|\_\
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  zkLogin session daemon - Version %s\x1b[0m\n\n", Version)
}
