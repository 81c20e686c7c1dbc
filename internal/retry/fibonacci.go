package retry

import "time"

// Fibonacci returns the 1-indexed Fibonacci number with fib(0) = fib(1) = 1,
// producing the sequence 1, 1, 2, 3, 5, 8, 13, ...
func Fibonacci(n int) int64 {
	if n <= 1 {
		return 1
	}
	var a, b int64 = 1, 1
	for i := 2; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// Delay computes the retry delay for the given attempt count as
// fib(attempt) * baseDelay. Growth is slower than exponential backoff early
// on, and the caller's max-attempts ceiling keeps the total retry horizon
// bounded.
func Delay(attempt int, baseDelay time.Duration) time.Duration {
	return time.Duration(Fibonacci(attempt)) * baseDelay
}
