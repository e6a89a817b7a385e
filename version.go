package multicore

// Version 版本号
const Version = "0.1.0"
