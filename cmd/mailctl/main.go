// Command mailctl 检查邮件投递配置并发送测试邮件。
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
